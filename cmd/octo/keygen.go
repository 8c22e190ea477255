package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/config"
	"github.com/matsen/octosphere/internal/octopus"
	"github.com/matsen/octosphere/internal/secret"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(profileIDCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a credential encryption key",
	Long: `Print a new random key for ` + config.EnvEncryptionKey + `.

Changing the key makes every stored app password unreadable; researchers
must reconnect afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secret.GenerateKey()
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		if humanOutput {
			fmt.Printf("%s=%s\n", config.EnvEncryptionKey, key)
			return nil
		}
		return outputJSON(map[string]string{"key": key})
	},
}

var profileIDCmd = &cobra.Command{
	Use:     "profile-id <url>",
	Short:   "Extract the Octopus user id from an author profile URL",
	Example: `  octo profile-id https://www.octopus.ac/authors/cl3fz14dr0001es6i5ji51rq4`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := octopus.ExtractUserIDFromURL(args[0])
		if !ok {
			exitWithError(ExitError, "not an Octopus author URL: %s", args[0])
		}
		if humanOutput {
			fmt.Println(id)
			return nil
		}
		return outputJSON(map[string]string{"octopus_user_id": id})
	},
}
