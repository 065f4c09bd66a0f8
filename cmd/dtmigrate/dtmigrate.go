package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/migrate"
	"github.com/dualtier/dtman/repository"
	_ "github.com/dualtier/dtman/repository/local"
	_ "github.com/dualtier/dtman/repository/mysql"
	_ "github.com/dualtier/dtman/repository/postgres"
	"github.com/spf13/cobra"
)

// dtmigrate drives schema migrations at deploy time, before the service
// itself comes up.

var (
	ConfigFilePath string
	Target         int64
	DryRun         bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dtmigrate",
		Short: "Apply or roll back schema migration units",
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFilePath, "conf", "c", "conf/dtman.hjson", "Config file path")
	rootCmd.PersistentFlags().Int64VarP(&Target, "target", "t", 0, "Target version, 0 means all pending")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending units",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			status, err := engine.Status()
			if err != nil {
				return err
			}
			return dump(status)
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the units an apply would run, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			pending, err := engine.Plan(Target)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("schema is up to date")
				return nil
			}
			for _, unit := range pending {
				fmt.Printf("%6d  %s\n", unit.Version, unit.Id)
			}
			return nil
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending units up to the target version",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			results, applyErr := engine.Apply(context.Background(), Target)
			if err := dump(results); err != nil {
				return err
			}
			return applyErr
		},
	}
	applyCmd.Flags().BoolVar(&DryRun, "dry-run", false, "Plan only, execute nothing")

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back applied units above the target version",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			results, rbErr := engine.RollbackTo(context.Background(), Target)
			if err := dump(results); err != nil {
				return err
			}
			return rbErr
		},
	}

	rootCmd.AddCommand(statusCmd, planCmd, applyCmd, rollbackCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dtmigrate: %v\n", err)
		os.Exit(1)
	}
}

func buildEngine() (*migrate.Engine, error) {
	if err := config.ParseConfigFile(ConfigFilePath, ""); err != nil {
		return nil, err
	}
	log.InitLoggerConsole()

	ps, err := repository.InitPersistent(config.GlobalConfig.Server.PersistentPolicy, config.GlobalConfig.PersistentConfig)
	if err != nil {
		return nil, err
	}
	if DryRun {
		config.GlobalConfig.Migration.DryRun = true
	}
	return migrate.NewEngine(&config.GlobalConfig.Migration, ps), nil
}

func dump(entity interface{}) error {
	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
