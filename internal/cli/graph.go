package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/policygraph/internal/rag"
)

var (
	processQuery   string
	processTimeout time.Duration
	statsFormat    string
)

var processCmd = &cobra.Command{
	Use:   "process <document>",
	Short: "Build and save the knowledge graph of a document",
	Long: `Process loads a document (.txt, .md, .pdf, .html or an http(s) URL),
extracts its sections, requirements and entities with the configured LLM,
builds the knowledge graph and saves it under the document name.

Example:
  policygraph process policies/data_protection.pdf
  policygraph process policy.txt --query "What are the encryption requirements?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), processTimeout)
		defer cancel()

		s, err := newSession()
		if err != nil {
			return err
		}
		resp := s.ProcessDocument(ctx, args[0], processQuery)
		if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		if resp.GraphStatus == rag.StatusProcessingFailed {
			return fmt.Errorf("processing %s failed", args[0])
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <graph> <question>",
	Short: "Answer a question from a saved graph",
	Example: `  policygraph query data_protection "Which data must be encrypted?"`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), processTimeout)
		defer cancel()

		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s.Query(ctx, strings.Join(args[1:], " ")))
	},
}

var modifyCmd = &cobra.Command{
	Use:   "modify <graph> <node> <details>",
	Short: "Replace a node's content or description and save the graph",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		resp := s.ModifyNode(args[1], strings.Join(args[2:], " "))
		return saveAndPrint(cmd.OutOrStdout(), s, resp, resp.GraphStatus == rag.StatusNodeUpdated)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <graph> <node>",
	Short: "Remove a node and its edges and save the graph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		resp := s.DeleteNode(args[1])
		return saveAndPrint(cmd.OutOrStdout(), s, resp, resp.GraphStatus == rag.StatusNodeDeleted)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <graph>",
	Short: "Print a text rendering of a saved graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Visualize())
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <graph>",
	Short: "Print node, edge and connectivity statistics of a saved graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		stats := s.Stats()

		switch statsFormat {
		case "json":
			return printJSON(cmd.OutOrStdout(), stats)
		case "yaml":
			data, err := yaml.Marshal(stats)
			if err != nil {
				return fmt.Errorf("marshal stats: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		default:
			return fmt.Errorf("unknown format %q (supported: json, yaml)", statsFormat)
		}
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node <graph> <node>",
	Short: "Print a node's attributes and neighbours",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		info, ok := s.NodeInfo(args[1])
		if !ok {
			return fmt.Errorf("node %s not found in graph %s", args[1], args[0])
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

var graphsCmd = &cobra.Command{
	Use:   "graphs",
	Short: "List saved graphs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		names, err := s.Graphs()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVarP(&processQuery, "query", "q", "", "question to answer once the graph is built")
	for _, c := range []*cobra.Command{processCmd, queryCmd} {
		c.Flags().DurationVar(&processTimeout, "timeout", 5*time.Minute, "overall timeout")
	}
	statsCmd.Flags().StringVar(&statsFormat, "format", "json", "output format (json, yaml)")

	rootCmd.AddCommand(processCmd, queryCmd, modifyCmd, deleteCmd, showCmd, statsCmd, nodeCmd, graphsCmd)
}

// saveAndPrint saves the graph when changed is true and prints resp
func saveAndPrint(w io.Writer, s *rag.Session, resp rag.Response, changed bool) error {
	if changed {
		if _, err := s.SaveGraph(); err != nil {
			return err
		}
	}
	return printJSON(w, resp)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
