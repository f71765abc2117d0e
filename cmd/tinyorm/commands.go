package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tinyorm/data/db/dialect"
	"tinyorm/data/orm"
	"tinyorm/data/orm/lazy"
	"tinyorm/examples/school"
)

// 状态行高亮；非终端输出或 --no-color 时 color 自动输出纯文本
var (
	okf    = color.New(color.FgGreen).SprintfFunc()
	titlef = color.New(color.Bold).SprintfFunc()
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the school tables and empty them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := school.EnsureSchema(ctx, database); err != nil {
			return err
		}
		if err := school.Truncate(ctx, database); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okf("schema ready"))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the fixed demo rows (student 1, class 11)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := school.Seed(cmd.Context(), database); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okf("seeded"))
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Save a student graph, then read student 1 lazily",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		s := school.DemoStudent()
		if err := orm.Save(ctx, provider, s); err != nil {
			return err
		}
		fmt.Fprintln(out, okf("saved student %d", *s.ID))

		p, err := lazy.Fetch[school.Student](ctx, provider, 1)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("student 1 not found, run `tinyorm seed` first")
		}
		addr, err := lazy.One[school.Address](ctx, p, "Address")
		if err != nil {
			return err
		}
		if addr != nil && addr.Street != nil {
			fmt.Fprintln(out, titlef("address:"), *addr.Street)
		}
		classes, err := lazy.Many[school.Class](ctx, p, "Classes")
		if err != nil {
			return err
		}
		for _, c := range classes {
			if c.Name != nil {
				fmt.Fprintf(out, "class %d: %s\n", *c.ID, *c.Name)
			}
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the dialect and provider capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titlef("dialect:"), dialect.FromDatabase(database).Name())
		fmt.Fprintln(out, titlef("capabilities:"), provider.Capabilities())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all students with their relations",
	RunE: func(cmd *cobra.Command, args []string) error {
		students, err := orm.ReadAll[school.Student](cmd.Context(), provider)
		if err != nil {
			return err
		}
		return render(cmd, students)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one student with its relations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		s, err := orm.GetByID[school.Student](cmd.Context(), provider, id)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("student %d not found", id)
		}
		return render(cmd, s)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a student row (relations are left in place)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		s := &school.Student{}
		s.SetPrimaryKey(id)
		if !orm.Delete(cmd.Context(), provider, s) {
			return fmt.Errorf("student %d not deleted", id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), okf("deleted student %d", id))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{listCmd, getCmd} {
		c.Flags().StringVarP(&flagOutput, "output", "o", "json", "output format: json or yaml")
	}
}

func render(cmd *cobra.Command, v any) error {
	var (
		data []byte
		err  error
	)
	switch flagOutput {
	case "json":
		data, err = json.MarshalIndent(v, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unknown output format %q (valid: json, yaml)", flagOutput)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
