// Command graphctl inspects a graph schema: rendering it as a Mermaid
// flowchart, or listing its nodes and edges with lipgloss-styled output.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/agentgraph/engine"
)

var (
	colorTitle = lipgloss.Color("#2CD7C7")
	colorMuted = lipgloss.Color("#6C7A89")
	colorKind  = lipgloss.Color("#F4D03F")

	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)
	styleKind  = lipgloss.NewStyle().Foreground(colorKind)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTitle).
			Padding(0, 1)
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "mermaid":
		runMermaid(os.Args[2:])
	case "nodes":
		runNodes(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: graphctl <command> -schema <file.json>

commands:
  mermaid -schema <file.json>   render the schema as a Mermaid flowchart
  nodes   -schema <file.json>   list the schema's nodes and edges`)
}

func loadSchema(path string) (engine.GraphSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return engine.GraphSchema{}, fmt.Errorf("read schema: %w", err)
	}
	var schema engine.GraphSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return engine.GraphSchema{}, fmt.Errorf("parse schema: %w", err)
	}
	return schema, nil
}

func runMermaid(args []string) {
	fs := flag.NewFlagSet("mermaid", flag.ExitOnError)
	path := fs.String("schema", "", "path to a GraphSchema JSON file")
	_ = fs.Parse(args)
	if *path == "" {
		fmt.Fprintln(os.Stderr, "graphctl mermaid: -schema is required")
		os.Exit(1)
	}

	schema, err := loadSchema(*path)
	fatalOn(err)
	fmt.Println(schemaToMermaid(schema))
}

func runNodes(args []string) {
	fs := flag.NewFlagSet("nodes", flag.ExitOnError)
	path := fs.String("schema", "", "path to a GraphSchema JSON file")
	_ = fs.Parse(args)
	if *path == "" {
		fmt.Fprintln(os.Stderr, "graphctl nodes: -schema is required")
		os.Exit(1)
	}

	schema, err := loadSchema(*path)
	fatalOn(err)

	fmt.Println(styleBox.Render(styleTitle.Render(fmt.Sprintf("%d nodes, %d edges", len(schema.Nodes), len(schema.Edges)))))
	for _, n := range schema.Nodes {
		fmt.Printf("  %-20s %s\n", n.ID, styleKind.Render(n.Template))
	}
	fmt.Println()
	for _, e := range schema.Edges {
		fmt.Printf("  %s %s %s\n", e.From, styleMuted.Render("-->"), e.To)
	}
}

// schemaToMermaid renders a persisted GraphSchema the way graph.Exporter
// renders a compiled StateGraph, using each node's configured template as
// its label since a schema node carries no compiled instance to describe it.
func schemaToMermaid(schema engine.GraphSchema) string {
	out := "flowchart TD\n"
	for _, n := range schema.Nodes {
		out += fmt.Sprintf("    %s[%q]\n", n.ID, n.ID+": "+n.Template)
	}
	for _, e := range schema.Edges {
		out += fmt.Sprintf("    %s --> %s\n", e.From, e.To)
	}
	return out
}

func fatalOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphctl: "+err.Error())
		os.Exit(1)
	}
}
