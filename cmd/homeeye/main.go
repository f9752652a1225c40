package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aeell/HomeEyeView/internal/app"
	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
)

var (
	buildVersion = "0.0.1" // 构建版本号
	gitBranch    = "dev"
	gitHash      = "debug"
)

var (
	configPath = flag.String("conf", "", "config file path, default configs/config.toml")
	version    = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *version {
		fmt.Println(buildVersion, gitBranch, gitHash)
		return
	}

	path := *configPath
	if path == "" {
		path = filepath.Join(system.Getwd(), "configs", "config.toml")
	}
	bc, err := conf.SetupConfig(path)
	if err != nil {
		slog.Error("load config", "path", path, "err", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	if err := app.Run(bc); err != nil {
		slog.Error("homeeye exited", "err", err)
		os.Exit(1)
	}
}
