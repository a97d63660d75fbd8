package cmd

import (
	"os"
	"path/filepath"

	"github.com/oneconcern/cloudstash/pkg/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage the cloudstash CLI config.

Configuration for cloudstash is the common set of flags that are needed for most commands and do not change across runs,
analogous to "git config ...".`,
}

func defaultConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+config.Name, config.Name+".yaml"), nil
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a config file",
	Long: `Generate a config file holding the current settings, including flags passed to this command.

Access tokens are never written to the config file.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if settings == nil {
			wrapFatalln("configuration not loaded", nil)
			return
		}

		target := cloudstashFlags.config.Output
		if target == "" {
			var err error
			if target, err = defaultConfigFile(); err != nil {
				wrapFatalln("could not get home directory for user", err)
				return
			}
		}

		exists, err := afero.Exists(appFs, target)
		if err != nil {
			wrapFatalln("check config file", err)
			return
		}
		if exists && !cloudstashFlags.config.Force {
			wrapFatalln("config file "+target+" already exists, use --force to overwrite it", nil)
			return
		}

		o, err := settings.YAML()
		if err != nil {
			wrapFatalln("serialize config to yaml", err)
			return
		}
		if err = appFs.MkdirAll(filepath.Dir(target), 0700); err != nil {
			wrapFatalln("create config directory", err)
			return
		}
		if err = afero.WriteFile(appFs, target, o, 0600); err != nil {
			wrapFatalln("write config file", err)
			return
		}
		infoLogger.Println("config written to", target)
	},
}

func init() {
	addOutputFlag(configGenerateCmd)
	addForceFlag(configGenerateCmd)
	configCmd.AddCommand(configGenerateCmd)
	rootCmd.AddCommand(configCmd)
}
