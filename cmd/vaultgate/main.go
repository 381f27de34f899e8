package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/org/vaultgate/internal/credential"
	"github.com/org/vaultgate/internal/storage"
	"github.com/org/vaultgate/pkg/models"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vaultgate",
	Short: "VaultGate CLI",
	Long:  "A CLI for managing VaultGate credentials and working with the vault API.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(configureCmd())
	rootCmd.AddCommand(credentialCmd())
	rootCmd.AddCommand(fileCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(activityCmd())
}

// --- configure ---

func configureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Save the server address and bearer secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("address")
			secret, _ := cmd.Flags().GetString("secret")
			if addr != "" {
				cfg.Address = addr
			}
			if secret != "" {
				cfg.Secret = secret
			}
			if err := saveConfig(); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Saved " + configPath())
			return nil
		},
	}
	cmd.Flags().String("address", "", "Server address, e.g. http://127.0.0.1:27124")
	cmd.Flags().String("secret", "", "Bearer secret")
	return cmd
}

// --- credential ---

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "credential", Short: "Manage credentials"}

	issueCmd := &cobra.Command{
		Use:   "issue <name>",
		Short: "Issue a new credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			caps := capsFromFlags(cmd)

			// --local writes straight to the settings file, for issuing the
			// first credential while the API is still fully closed.
			if local, _ := cmd.Flags().GetBool("local"); local {
				settingsFile, _ := cmd.Flags().GetString("settings-file")
				return issueLocal(name, caps, settingsFile)
			}

			client := newClient()
			result, err := client.post("/v1/sys/credentials", map[string]any{
				"name":         name,
				"capabilities": caps,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	issueCmd.Flags().Bool("local", false, "Issue against the settings file directly, bypassing the API")
	issueCmd.Flags().String("settings-file", "vaultgate.yaml", "Settings file (with --local)")
	issueCmd.Flags().Bool("all-caps", false, "Grant every capability")
	issueCmd.Flags().StringSlice("caps", nil, "Capabilities to grant: files,mutate,search,tasks,capture,periodic,manage")

	revokeCmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a credential by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if err := client.delete("/v1/sys/credentials/" + args[0]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Revoked credential: " + args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List credentials (secrets are never shown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/sys/credentials")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(issueCmd, revokeCmd, listCmd)
	return cmd
}

func capsFromFlags(cmd *cobra.Command) models.CapabilitySet {
	if all, _ := cmd.Flags().GetBool("all-caps"); all {
		return models.AllCapabilities()
	}
	names, _ := cmd.Flags().GetStringSlice("caps")
	var caps models.CapabilitySet
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "files":
			caps.FileAccess = true
		case "mutate":
			caps.ContentMutation = true
		case "search":
			caps.Search = true
		case "tasks":
			caps.Tasks = true
		case "capture":
			caps.Capture = true
		case "periodic":
			caps.Periodic = true
		case "manage":
			caps.Manage = true
		}
	}
	return caps
}

func issueLocal(name string, caps models.CapabilitySet, settingsFile string) error {
	ctx := context.Background()
	backend := storage.NewFileBackend(settingsFile)
	initial, err := backend.LoadCredentials(ctx)
	if err != nil {
		printError(err.Error())
		return nil
	}
	store := credential.NewStore(initial, backend.SaveCredentials)
	c, err := store.Issue(ctx, name, caps)
	if err != nil {
		printError(err.Error())
		return nil
	}
	printResult(map[string]any{
		"id":     c.ID,
		"name":   c.Name,
		"secret": c.Secret,
	})
	fmt.Fprintln(os.Stderr, "The secret is shown once and cannot be recovered later.")
	return nil
}

// --- file ---

func fileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "file", Short: "Read and write vault notes"}

	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/vault/files/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			if content, ok := result["content"].(string); ok && outputFormat == "table" {
				fmt.Print(content)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	putCmd := &cobra.Command{
		Use:   "put <path> [content]",
		Short: "Create or overwrite a note (content from arg or stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			if len(args) == 2 {
				content = args[1]
			} else {
				data, err := os.ReadFile("/dev/stdin")
				if err != nil {
					printError(err.Error())
					return nil
				}
				content = string(data)
			}
			client := newClient()
			result, err := client.put("/v1/vault/files/"+args[0], map[string]any{"content": content})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if err := client.delete("/v1/vault/files/" + args[0]); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Success! Deleted: " + args[0])
			return nil
		},
	}

	cmd.AddCommand(getCmd, putCmd, rmCmd)
	return cmd
}

// --- list ---

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [dir]",
		Short: "List a vault directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			client := newClient()
			result, err := client.get("/v1/vault/list/" + dir)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if entries, ok := result["entries"].([]any); ok && outputFormat == "table" {
				for _, e := range entries {
					if m, ok := e.(map[string]any); ok {
						fmt.Println(m["path"])
					}
				}
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- search / tasks / capture ---

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search note contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/search?q=" + url.QueryEscape(args[0]))
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List checkbox tasks across the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			url := "/v1/tasks"
			if status != "" {
				url += "?status=" + status
			}
			client := newClient()
			result, err := client.get(url)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("status", "", "Filter: open or done")
	return cmd
}

func captureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture <text>",
		Short: "Append a quick note to the inbox",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/v1/capture", map[string]any{
				"text": strings.Join(args, " "),
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- activity ---

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity [name]",
		Short: "Show per-credential activity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			url := "/v1/activity"
			if len(args) == 1 {
				url += "/" + args[0]
			} else if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
				url += fmt.Sprintf("?limit=%d", limit)
			}
			result, err := client.get(url)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum credentials to list")
	return cmd
}
