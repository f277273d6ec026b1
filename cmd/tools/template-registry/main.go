// cmd/tools/template-registry/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"billing-workers/internal/notification"
	"billing-workers/internal/notification/template"
	"billing-workers/pkg/registry"
)

const defaultPath = "configs/templates.json"

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)

	listPath := listCmd.String("path", defaultPath, "Path to registry file")
	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")

	renderPath := renderCmd.String("path", defaultPath, "Path to registry file")
	renderType := renderCmd.String("type", "", "Notification type (e.g., payment_reminder)")
	renderLang := renderCmd.String("lang", "ar", "Template language")
	renderVars := renderCmd.String("vars", "{}", "Template variables as a JSON object")

	initPath := initCmd.String("path", defaultPath, "Where to write the built-in registry")
	force := initCmd.Bool("force", false, "Overwrite an existing file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		err = listTemplates(*listPath)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = validateRegistry(*validatePath)

	case "render":
		renderCmd.Parse(os.Args[2:])
		if *renderType == "" {
			fmt.Println("Error: type is required for render.")
			renderCmd.Usage()
			os.Exit(1)
		}
		err = renderTemplate(*renderPath, *renderType, *renderLang, *renderVars)

	case "init":
		initCmd.Parse(os.Args[2:])
		err = writeDefaults(*initPath, *force)

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func listTemplates(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	templates := append([]registry.Template(nil), reg.Templates...)
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tLANGUAGE\tVARIABLES")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", t.ID, t.Type, t.Language, registry.Placeholders(t.Subject+" "+t.Body))
	}
	return w.Flush()
}

func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	for _, t := range reg.Templates {
		if _, ok := notification.CategoryOf(notification.Type(t.Type)); !ok && notification.Type(t.Type) != notification.TypeTest {
			fmt.Printf("Warning: template %s has unknown type %q\n", t.ID, t.Type)
		}
	}

	fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))
	return nil
}

func renderTemplate(path, typ, lang, varsJSON string) error {
	reg, err := registry.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(varsJSON), &vars); err != nil {
		return fmt.Errorf("vars must be a JSON object: %w", err)
	}

	out, err := template.NewRenderer(reg, lang).Render(notification.Type(typ), lang, vars)
	if err != nil {
		return err
	}

	fmt.Printf("Template: %s (%s)\n", out.TemplateID, out.Language)
	if out.Subject != "" {
		fmt.Printf("Subject:  %s\n", out.Subject)
	}
	fmt.Printf("Body:\n%s\n", out.Body)
	return nil
}

func writeDefaults(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use -force to overwrite", path)
	}
	reg := registry.Default()
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	if err := registry.Save(reg, path); err != nil {
		return err
	}
	fmt.Printf("Wrote %d templates to %s\n", len(reg.Templates), path)
	return nil
}

func help() {
	fmt.Print(`
Usage: template-registry <command> [flags]

Commands:
  list      List the templates in the registry
  validate  Validate the registry file
  render    Render one template with sample variables
  init      Write the built-in templates to a registry file
  help      Show this help message

Examples:
  template-registry list -path configs/templates.json
  template-registry validate -path configs/templates.json
  template-registry render -type payment_reminder -lang en -vars '{"tenantName":"Sara","amount":"4166.67","dueDate":"2025-03-31","daysUntilDue":3}'
  template-registry init -path configs/templates.json

Use 'template-registry <command> -h' for more information about a command.
` + "\n")
}
