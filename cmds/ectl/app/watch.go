package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/brisklabs/buildengine/pkg/inspect"
	"github.com/brisklabs/buildengine/watch"
	"github.com/spf13/cobra"
)

type Watch struct {
	cmd *cobra.Command

	mainopts *Options
	current  bool
}

func NewWatch(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <tag> <options>",
		Short: "watch a rule tag's build events",
	}
	TweakCommand(cmd)

	c := &Watch{
		cmd:      cmd,
		mainopts: opts,
	}
	c.cmd.RunE = func(cmd *cobra.Command, args []string) error { return c.Run(args) }
	flags := cmd.Flags()
	flags.BoolVarP(&c.current, "current", "c", false, "replay every already-built key of the tag before live events")
	return cmd
}

func (c *Watch) Run(args []string) error {
	u, err := url.Parse(c.mainopts.GetURL())
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	if len(args) != 1 {
		return fmt.Errorf("exactly one rule tag argument required")
	}
	tag := args[0]

	a := fmt.Sprintf("%s://%s/watch", scheme, u.Host)

	s, err := Consume(c.cmd.OutOrStdout(), a, tag, c.current)
	if err != nil {
		return err
	}
	s.Wait()
	return nil
}

func Consume(w io.Writer, address string, tag string, current bool) (watch.Syncher, error) {
	c := watch.NewClient[inspect.Request, inspect.Event](address)

	registration := inspect.Request{Tag: tag, Current: current}
	return c.Register(context.Background(), registration, &handler{w})
}

type handler struct {
	w io.Writer
}

func (h *handler) HandleEvent(e inspect.Event) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(h.w, "%s\n", string(data))
}
