package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	v1 "sinhome/api/v1"
	"sinhome/internal/chat"
	"sinhome/internal/provider"
	"sinhome/internal/server"
)

// ChatOptions chat 命令选项
type ChatOptions struct {
	File      string
	SessionID string
	Script    bool
	JSON      bool
}

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	opts := &ChatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Answer one chat request without the HTTP server",
		Long: `Answer one chat request through the same pipeline as POST /api/v1/chat.

The request is the JSON body of the endpoint, read from --file or from stdin.
A message given as argument replaces the body's message, and with no body
a request holding only that message is sent.

On a terminal the answer is printed as text; otherwise the JSON response
body is written.`,
		Example: `  # Send a single message
  sinhome chat "Salut, ça va ?"

  # Send a full request body
  sinhome chat --file request.json

  # Pipe a request and use the script endpoint
  cat request.json | sinhome chat --script`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "request body file (JSON)")
	cmd.Flags().StringVarP(&opts.SessionID, "session", "s", "", "session ID (overrides the body)")
	cmd.Flags().BoolVar(&opts.Script, "script", false, "use the script endpoint pipeline")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "always output JSON")

	return cmd
}

func runChat(cmd *cobra.Command, args []string, opts *ChatOptions) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	body, err := readChatRequest(cmd.InOrStdin(), opts.File, len(args) == 0)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		body.Message = provider.TextContent(strings.Join(args, " "))
	}
	if opts.SessionID != "" {
		body.SessionID = opts.SessionID
	}
	if body.Message.IsEmpty() {
		return errors.New("message is required")
	}

	srv, err := cliCtx.Engine(server.Options{})
	if err != nil {
		return err
	}

	run := srv.Chat().Chat
	if opts.Script {
		run = srv.Chat().Script
	}
	resp, err := run(cmd.Context(), body.ToChat(""))
	if err != nil {
		return err
	}

	return printChatResponse(cmd.OutOrStdout(), resp, opts.JSON || !isTerminal(cmd.OutOrStdout()))
}

// readChatRequest 读取请求体；fromStdin 为 false 且未指定文件时返回空请求
func readChatRequest(stdin io.Reader, file string, fromStdin bool) (v1.ChatRequest, error) {
	var body v1.ChatRequest

	var r io.Reader
	switch {
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return body, fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	case fromStdin && !isTerminal(stdin):
		r = stdin
	default:
		return body, nil
	}

	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return body, fmt.Errorf("decode request: %w", err)
	}
	return body, nil
}

func printChatResponse(w io.Writer, resp *chat.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v1.NewChatResponse(resp))
	}

	fmt.Fprintln(w, resp.Text)
	if resp.Meta.DupReprompts > 0 || resp.Meta.UsedSummary {
		fmt.Fprintf(w, "  (reprompts: %d, summary: %v)\n", resp.Meta.DupReprompts, resp.Meta.UsedSummary)
	}
	return nil
}

// isTerminal 判断读写端是否为终端
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
