package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/KotoriAster/DB/conf"
	"github.com/KotoriAster/DB/logger"
	"github.com/KotoriAster/DB/server/storage"

	"github.com/fatih/color"
)

const help = `usage: db [-config my.ini] [-data DIR] <command>

commands:
  tables          list tables in the catalog
  info <table>    show table statistics and walk the block chain
`

func main() {
	var configPath string
	var dataDir string
	flag.StringVar(&configPath, "config", "", "配置文件路径")
	flag.StringVar(&dataDir, "data", "", "数据目录，优先于配置文件")
	flag.Parse()

	args := &conf.CommandLineArgs{
		ConfigPath: configPath,
		DataDir:    dataDir,
	}
	cfg := conf.NewCfg().Load(args)

	logConfig := logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}
	if err := logger.InitLogger(logConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	if flag.NArg() < 1 {
		fmt.Print(help)
		os.Exit(1)
	}

	db, err := storage.Open(cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "tables":
		listTables(db)
	case "info":
		if flag.NArg() < 2 {
			fmt.Print(help)
			os.Exit(1)
		}
		showTable(db, flag.Arg(1))
	default:
		fmt.Print(help)
		os.Exit(1)
	}
}

func listTables(db *storage.DB) {
	names := db.Schema.Tables()
	if len(names) == 0 {
		fmt.Println("no tables")
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	for _, name := range names {
		info, _ := db.Schema.Lookup(name)
		fmt.Printf("%s  (%s, %d fields, key %d)\n", bold(name), info.Path, info.Count, info.Key)
		for _, field := range info.Fields {
			fmt.Printf("    %-16s %s[%d]\n", field.Name, field.Type.Name, field.Length)
		}
	}
}

func showTable(db *storage.DB, name string) {
	t, err := db.OpenTable(name)
	if err != nil {
		logger.Fatalf("open table %s: %v", name, err)
	}

	records, _ := t.RecordCount()
	dataCount, _ := t.DataCount()
	idleCount, _ := t.IdleCount()

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("table %s: %s records, %s data blocks, %s idle blocks\n",
		name, green(records), green(dataCount), yellow(idleCount))

	it, err := t.BeginBlock()
	if err != nil {
		logger.Fatalf("walk table %s: %v", name, err)
	}
	for it.Valid() {
		block := it.Block()
		fmt.Printf("  block %-6d slots %-5d freesize %-6d next %d\n",
			block.GetSelf(), block.GetSlots(), block.GetFreeSize(), block.GetNext())
		if err := it.Next(); err != nil {
			logger.Fatalf("walk table %s: %v", name, err)
		}
	}
}
