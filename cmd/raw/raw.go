package raw

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/wayfarer/cli/cmd/cmdutil"
)

// RawCmd represents the raw command
var RawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Raw request commands",
	Long: `Raw request commands for Wayfarer CLI.

Send a request to any backend path through the same session, CSRF and
error handling the other commands use, and print the response body.`,
}

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Send a GET request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, http.MethodGet, args[0], nil)
	},
}

var postCmd = &cobra.Command{
	Use:   "post <path>",
	Short: "Send a POST request with a JSON body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		if data == "" {
			data = "{}"
		}
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		return send(cmd, http.MethodPost, args[0], []byte(data))
	},
}

func send(cmd *cobra.Command, method, path string, payload []byte) error {
	rt, err := cmdutil.Runtime()
	if err != nil {
		return err
	}

	var body interface{}
	if payload != nil {
		body = payload
	}
	resp, err := rt.API.Raw(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, resp, "", "  ") == nil {
		resp = pretty.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(resp))
	return nil
}

func init() {
	postCmd.Flags().StringP("data", "d", "", "JSON request body")

	RawCmd.AddCommand(getCmd)
	RawCmd.AddCommand(postCmd)
}
