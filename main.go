package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dualtier/dtman/cache"
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/coordinator"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/migrate"
	"github.com/dualtier/dtman/notify"
	"github.com/dualtier/dtman/repository"
	_ "github.com/dualtier/dtman/repository/local"
	_ "github.com/dualtier/dtman/repository/mysql"
	_ "github.com/dualtier/dtman/repository/postgres"
	"github.com/dualtier/dtman/router"
	"github.com/dualtier/dtman/server"
	"github.com/dualtier/dtman/service/cron"
	"github.com/spf13/cobra"
)

var (
	Version        = ""
	BuildTimeStamp = ""
	GitCommitHash  = ""
	ConfigFilePath = ""
	LogFilePath    = ""
)

func main() {
	InitCmd()
	if err := config.ParseConfigFile(ConfigFilePath, Version); err != nil {
		fmt.Printf("Parse config file %s fail: %v\n", ConfigFilePath, err)
		os.Exit(1)
	}
	log.InitLogger(LogFilePath, &config.GlobalConfig.Log)

	log.Logger.Info("dtman starting...")
	log.Logger.Infof("version: %v", Version)
	log.Logger.Infof("build time: %v", BuildTimeStamp)
	log.Logger.Infof("git commit hash: %v", GitCommitHash)
	DumpConfig(config.GlobalConfig)

	ps, err := repository.InitPersistent(config.GlobalConfig.Server.PersistentPolicy, config.GlobalConfig.PersistentConfig)
	if err != nil {
		log.Logger.Fatalf("init persistent failed:%v", err)
	}

	notifier := notify.NewNotifier(&config.GlobalConfig.Notify)

	manager, err := cache.NewClusterManager(&config.GlobalConfig.Cache, notifier)
	if err != nil {
		log.Logger.Fatalf("init cache cluster manager failed:%v", err)
	}
	manager.Start()
	defer manager.Stop()

	co := coordinator.NewCoordinator(&config.GlobalConfig.Coordinator, manager, ps, notifier)
	co.Start()
	defer co.Stop()

	engine := migrate.NewEngine(&config.GlobalConfig.Migration, ps)

	// start http server
	svr := server.NewApiServer(&config.GlobalConfig, router.Dependencies{
		Config:      &config.GlobalConfig,
		Manager:     manager,
		Coordinator: co,
		Engine:      engine,
	})
	if err = svr.Start(); err != nil {
		log.Logger.Fatalf("start http server fail: %v", err)
	}
	defer svr.Stop()
	log.Logger.Infof("start http server %s:%d success", config.GlobalConfig.Server.Ip, config.GlobalConfig.Server.Port)

	cronSvr := cron.NewCronService(&config.GlobalConfig.Coordinator, co)
	if err = cronSvr.Start(); err != nil {
		log.Logger.Fatalf("Failed to start cron service, %v", err)
	}
	defer cronSvr.Stop()

	//block here, waiting for terminal signal
	handleSignal()
}

func handleSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	sig := <-ch
	log.Logger.Infof("receive signal: %v", sig)
	log.Logger.Warn("dtman exiting...")
	signal.Stop(ch)
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Long:  "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("version: %v\n", Version)
		fmt.Printf("build time: %v\n", BuildTimeStamp)
		fmt.Printf("git commit hash: %v\n", GitCommitHash)
		os.Exit(0)
	},
}

func InitCmd() {
	var rootCmd = &cobra.Command{
		Use: "dtman",
	}

	rootCmd.PersistentFlags().StringVarP(&ConfigFilePath, "conf", "c", "conf/dtman.hjson", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&LogFilePath, "log", "l", "logs/dtman.log", "Log file path")
	rootCmd.AddCommand(VersionCmd)

	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		return nil
	})
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:   "help",
		Short: "Help about any command",
		Long:  "Help about any command",
		Run: func(cmd *cobra.Command, args []string) {
			rootCmd.SetUsageFunc(nil)
			_ = rootCmd.Help()
			os.Exit(0)
		},
	})
	_ = rootCmd.Execute()
	fmt.Println("dtman coordinates a cache tier and a durable store")
	fmt.Printf("dtman-%v is running...\n", Version)
	fmt.Printf("See more information in %s\n", LogFilePath)
}

func DumpConfig(conf config.DTManConfig) {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		log.Logger.Errorf("marshal error: %v", err)
		return
	}
	log.Logger.Infof("%v", string(data))
}
