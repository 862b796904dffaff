package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

type Get struct {
	cmd *cobra.Command

	mainopts *Options
	sort     string
	output   string
}

func NewGet(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <tag> {<key>} <options>",
		Short: "get stored entries from the dependency database",
	}
	TweakCommand(cmd)

	c := &Get{
		cmd:      cmd,
		mainopts: opts,
	}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(args) }
	flags := cmd.Flags()
	flags.StringVarP(&c.sort, "sort", "s", "", "sort field: NAME, BUILT or CHANGED")
	flags.StringVarP(&c.output, "output", "o", "", "output format: (empty table), json or yaml")
	return cmd
}

func (c *Get) Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("rule tag required")
	}
	tag := args[0]
	if strings.Contains(tag, "/") {
		return fmt.Errorf("invalid / in tag name")
	}

	var entries []*entrydb.Entry

	if len(args) > 1 {
		for _, k := range args[1:] {
			get, err := http.Get(c.mainopts.GetURL() + path.Join(tag, k))
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			data, err := ResponseData(get)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			var e entrydb.Entry
			if err := json.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			entries = append(entries, &e)
		}
	} else {
		get, err := http.Get(c.mainopts.GetURL() + tag)
		if err != nil {
			return err
		}
		data, err := ResponseData(get)
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
	}

	switch strings.ToUpper(strings.TrimSpace(c.sort)) {
	case "", "NAME":
		slices.SortFunc(entries, func(a, b *entrydb.Entry) int { return strings.Compare(a.Name, b.Name) })
	case "BUILT":
		slices.SortFunc(entries, func(a, b *entrydb.Entry) int { return int(a.BuiltRun - b.BuiltRun) })
	case "CHANGED":
		slices.SortFunc(entries, func(a, b *entrydb.Entry) int { return int(a.ChangedRun - b.ChangedRun) })
	default:
		return fmt.Errorf("unknown sort field %q", c.sort)
	}

	switch strings.ToLower(strings.TrimSpace(c.output)) {
	case "":
		return PrintEntryTable(c.cmd.OutOrStdout(), entries)
	case "json":
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.cmd.OutOrStdout(), "%s\n", string(data))
	case "yaml":
		data, err := yaml.Marshal(entries)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.cmd.OutOrStdout(), "%s\n", string(data))
	default:
		return fmt.Errorf("unknown output format %q", c.output)
	}
	return nil
}

func PrintEntryTable(w io.Writer, entries []*entrydb.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintf(w, "no entries found\n")
		return nil
	}
	columns := []string{"NAME", "BUILT", "CHANGED", "DEPENDENCIES"}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Name, fmt.Sprint(e.BuiltRun), fmt.Sprint(e.ChangedRun), fmt.Sprint(len(e.Dependencies))}
	}

	max := make([]int, len(columns))
	for i, s := range columns {
		max[i] = len(s)
	}
	for _, row := range rows {
		for i, s := range row {
			if max[i] < len(s) {
				max[i] = len(s)
			}
		}
	}

	f := formatString(max)
	printLine(w, columns, f)
	for _, row := range rows {
		printLine(w, row, f)
	}
	return nil
}

func printLine(w io.Writer, cols []string, msg string) {
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = c
	}
	fmt.Fprintf(w, "%s\n", strings.TrimRight(fmt.Sprintf(msg, args...), " "))
}

func formatString(max []int) string {
	msg := ""
	for _, l := range max {
		msg += fmt.Sprintf("%%-%ds ", l)
	}
	return msg[:len(msg)-1]
}
