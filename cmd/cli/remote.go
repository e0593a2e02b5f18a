package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

func newRemoteCmd() *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running aca-sandbox server",
	}
	remote.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	remote.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("ACA_API_KEY"), "API key")

	runCmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Execute code on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRemote,
	}
	runCmd.Flags().StringVarP(&language, "language", "l", "", "Language (python, go); detected from the file extension")
	runCmd.Flags().StringVarP(&capabilities, "capabilities", "c", "", "Capability set (basic, extended)")
	runCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Confirm execution without prompting")
	remote.AddCommand(runCmd)

	remote.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return remoteCall(cmd.OutOrStdout(), http.MethodGet, "/health", nil)
		},
	})
	remote.AddCommand(&cobra.Command{
		Use:   "manifest",
		Short: "Show the server's last-run manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return remoteCall(cmd.OutOrStdout(), http.MethodGet, "/manifest", nil)
		},
	})
	return remote
}

func runRemote(cmd *cobra.Command, args []string) error {
	code, lang, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"code":         code,
		"language":     lang,
		"capabilities": capabilities,
		"confirmed":    assumeYes,
	}
	return remoteCall(cmd.OutOrStdout(), http.MethodPost, "/execute", payload)
}

func remoteCall(out io.Writer, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 70 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(out, string(formatted))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if ok, present := result["success"].(bool); present && !ok {
		return errRunFailed
	}
	return nil
}
