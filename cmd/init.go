package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sfriedel/orgmirror/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "orgmirror.yaml"
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("wrote configuration to %s\n", path)
		return nil
	},
}
