// Command sproc calls one stored procedure against a connection from a YAML
// connections file and prints the resulting table.
//
// Usage:
//
//	sproc -config connections.yaml -connection DefaultConnection \
//	    monthly_report month=2026-08 region=
//
// Each argument after the procedure name is name=value; name= (empty value)
// binds SQL NULL. -exec suppresses result handling for procedures that
// return nothing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/go-mizu/sproc"
)

func main() {
	var (
		configPath = flag.String("config", "connections.yaml", "path to the YAML connections file")
		connection = flag.String("connection", sproc.DefaultConnection, "connection entry name")
		execOnly   = flag.Bool("exec", false, "execute without reading results")
		timeout    = flag.Duration("timeout", 30*time.Second, "overall call timeout")
		logFile    = flag.String("log-file", "", "also write JSON logs to this file, with rotation")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: sproc [flags] procedure [name=value ...]")
		flag.Usage()
		os.Exit(2)
	}
	procedure := flag.Arg(0)

	log := newLogger(*logFile, *verbose)
	defer func() { _ = log.Sync() }()

	names, values, err := parseParams(flag.Args()[1:])
	if err != nil {
		log.Fatal("bad parameter", zap.Error(err))
	}

	source, err := sproc.LoadFile(*configPath)
	if err != nil {
		log.Fatal("cannot load connections file", zap.Error(err))
	}
	driver, err := source.Driver(*connection)
	if err != nil {
		log.Fatal("cannot resolve driver", zap.Error(err))
	}

	exec, err := sproc.New(sproc.Config{
		Driver:     driver,
		Connection: *connection,
		Source:     source,
	}, sproc.WithLogger(log))
	if err != nil {
		log.Fatal("cannot build executor", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *execOnly {
		if err := exec.Exec(ctx, procedure, names, values); err != nil {
			log.Fatal("call failed", zap.String("procedure", procedure), zap.Error(err))
		}
		return
	}

	table, err := exec.Query(ctx, procedure, names, values)
	if err != nil {
		log.Fatal("call failed", zap.String("procedure", procedure), zap.Error(err))
	}
	printTable(table)
}

// parseParams splits name=value arguments into the parallel slices Query
// expects. An empty value becomes a nil pointer, binding SQL NULL.
func parseParams(args []string) ([]string, []*string, error) {
	if len(args) == 0 {
		return nil, nil, nil
	}
	names := make([]string, 0, len(args))
	values := make([]*string, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("parameter %q is not name=value", arg)
		}
		names = append(names, name)
		if value == "" {
			values = append(values, nil)
		} else {
			v := value
			values = append(values, &v)
		}
	}
	return names, values, nil
}

func printTable(t *sproc.Table) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

// newLogger builds a console logger, teeing JSON output into a rotated file
// when one is configured.
func newLogger(logFile string, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(os.Stderr), level),
	}

	if logFile != "" {
		fileSyncer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), fileSyncer, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
}
