// Package main 提供 tinyorm 演示命令行：建表、写入演示数据、急/延迟加载读取。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
