package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// TweakCommand applies the option settings every ectl subcommand shares:
// a RunE error is the caller's problem, not a usage mistake, so cobra
// should print it once and not also dump the flag usage block.
func TweakCommand(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
}

func ResponseData(r *http.Response) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if r.StatusCode == http.StatusCreated || r.StatusCode == http.StatusOK {
		return data, nil
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("request failed with status %s", r.Status)
	}

	var msg struct {
		Error string `json:"error"`
	}
	err = json.Unmarshal(data, &msg)
	if err != nil || msg.Error == "" {
		return nil, fmt.Errorf("request failed with status %s", r.Status)
	}
	return nil, fmt.Errorf("%s", msg.Error)
}
