package orm

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

var timeType = reflect.TypeOf(time.Time{})

// AssignValue 将驱动返回的原始值写入字段。
//
// NULL 写入为字段零值：指针字段为 nil，从不分配“默认零值”的指针。
// 整数/浮点/布尔/时间/字符串按字段种类经 cast 转换；sqlite 文本列可能返回 []byte。
func AssignValue(field reflect.Value, raw any) error {
	if raw == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := AssignValue(elem.Elem(), raw); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if b, ok := raw.([]byte); ok && field.Kind() != reflect.Slice {
		raw = string(b)
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		field.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := cast.ToInt64E(raw)
		if err != nil {
			return err
		}
		if field.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %s", i, field.Type())
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(raw)
		if err != nil {
			return err
		}
		if field.OverflowUint(u) {
			return fmt.Errorf("value %d overflows %s", u, field.Type())
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		if field.Type() == timeType {
			ts, err := cast.ToTimeE(raw)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(ts))
			return nil
		}
		if rv.Type().ConvertibleTo(field.Type()) {
			field.Set(rv.Convert(field.Type()))
			return nil
		}
		return fmt.Errorf("cannot assign %T to %s", raw, field.Type())
	}
	return nil
}

// ColumnValue 取字段值用作语句参数：nil 指针为 NULL，非 nil 指针解引用
func ColumnValue(field reflect.Value) any {
	if !field.IsValid() {
		return nil
	}
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil
		}
		return field.Elem().Interface()
	}
	return field.Interface()
}
