package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/uber-go/tally/v4"
	promreporter "github.com/uber-go/tally/v4/prometheus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bitmark-inc/covid19-uk/api"
	"github.com/bitmark-inc/covid19-uk/background"
	"github.com/bitmark-inc/covid19-uk/consts"
	"github.com/bitmark-inc/covid19-uk/external/phe"
	"github.com/bitmark-inc/covid19-uk/pipeline"
	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/store"
)

var (
	server      *api.Server
	refresher   *background.Refresher
	mongoStore  store.MongoStore
	scopeCloser io.Closer
)

func initLog() {
	logLevel, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(logLevel)
	}

	log.SetOutput(os.Stdout)

	log.SetFormatter(&prefixed.TextFormatter{
		ForceFormatting: true,
		FullTimestamp:   true,
	})
}

func loadConfig(file string) {
	viper.SetDefault("phe.url", consts.DefaultAPIURL)
	viper.SetDefault("phe.timeout", 30*time.Second)
	viper.SetDefault("store.dir", "./out")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("refresh.schedule", background.DefaultSchedule)
	viper.SetDefault("refresh.timeout", background.DefaultTimeout)
	viper.SetDefault("refresh.on_start", true)

	// Config from file
	viper.SetConfigType("yaml")
	if file != "" {
		viper.SetConfigFile(file)
	}

	viper.AddConfigPath("/.config/")
	viper.AddConfigPath(".")
	err := viper.ReadInConfig()
	if err != nil {
		fmt.Println("No config file. Read config from env.")
		viper.AllowEmptyEnv(false)
	}

	// Config from env if possible
	viper.AutomaticEnv()
	viper.SetEnvPrefix("covid19")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func main() {
	var configFile string

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("Server is preparing to shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if refresher != nil {
			log.Info("Stopping refresher")
			refresher.Stop()
		}

		if server != nil {
			log.Info("Shutdown api server")
			if err := server.Shutdown(ctx); err != nil {
				log.Error("Server Shutdown:", err)
			}
		}

		if mongoStore != nil {
			mongoStore.Close()
		}

		if scopeCloser != nil {
			_ = scopeCloser.Close()
		}

		sentry.Flush(5 * time.Second)
		os.Exit(1)
	}()

	flag.StringVar(&configFile, "c", "./config.yaml", "[optional] path of configuration file")
	flag.Parse()

	loadConfig(configFile)

	initLog()

	// Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("sentry.dsn"),
		AttachStacktrace: true,
		Environment:      viper.GetString("sentry.environment"),
		Dist:             viper.GetString("sentry.dist"),
	}); err != nil {
		log.Error(err)
	}
	log.WithField("prefix", "init").Info("Initialized sentry")

	// Metrics exposed by /metrics
	reporter := promreporter.NewReporter(promreporter.Options{})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "covid19_uk",
		Tags:           map[string]string{},
		CachedReporter: reporter,
		Separator:      promreporter.DefaultSeparator,
	}, time.Second)
	scopeCloser = closer

	config, err := pipeline.ConfigFromViper(viper.GetViper())
	if err != nil {
		log.Panic(err)
	}

	opts := []pipeline.Option{pipeline.WithScope(scope)}
	if config.CoordinatesFile != "" {
		ref, err := store.LoadCoordinates(config.CoordinatesFile)
		if err != nil {
			log.Panic(err)
		}
		opts = append(opts, pipeline.WithCoordinates(ref))
	}

	source := phe.New(
		viper.GetString("phe.url"),
		phe.WithTimeout(viper.GetDuration("phe.timeout")),
		phe.WithScope(scope),
	)
	p, err := pipeline.New(config, source, opts...)
	if err != nil {
		log.Panic(err)
	}
	log.WithField("prefix", "init").Info("Initialized pipeline")

	fileStore, err := store.NewFileStore(viper.GetString("store.dir"))
	if err != nil {
		log.Panic(err)
	}
	sinks := []pipeline.Sink{fileStore}
	pingers := []api.Pinger{}

	if conn := viper.GetString("mongo.conn"); conn != "" {
		// initialise mongodb connections
		opts := options.Client().ApplyURI(conn)
		opts.SetMaxPoolSize(viper.GetUint64("mongo.pool"))
		mongoClient, err := mongo.NewClient(opts)
		if nil != err {
			log.Panicf("create mongo client with error: %s", err)
		}

		err = mongoClient.Connect(context.Background())
		if nil != err {
			log.Panicf("connect mongo database with error: %s", err)
		}

		database := viper.GetString("mongo.database")
		if err := schema.NewMongoDBIndexer(mongoClient, database).IndexAll(); err != nil {
			log.Panic(err)
		}

		mongoStore = store.NewMongoStore(mongoClient, database)
		sinks = append(sinks, mongoStore)
		pingers = append(pingers, mongoStore)
		log.WithField("prefix", "init").Info("Initialized mongo store")
	}

	// serve the tables of the previous run until the first refresh
	holder := background.NewHolder()
	if batch, err := fileStore.LoadBatch(); err == nil {
		holder.Load(batch)
		log.WithFields(log.Fields{"prefix": "init", "run_id": batch.RunID}).Info("Loaded previous tables")
	} else if !errors.Is(err, store.ErrNoManifest) {
		log.WithField("prefix", "init").Warn(err)
	}

	refresher = background.NewRefresher(p, holder, sinks...)
	refresher.SetTimeout(viper.GetDuration("refresh.timeout"))
	if err := refresher.Start(viper.GetString("refresh.schedule")); err != nil {
		log.Panic(err)
	}
	if viper.GetBool("refresh.on_start") {
		go refresher.Refresh(context.Background())
	}

	// Init http server
	server = api.NewServer(holder, reporter.HTTPHandler(), pingers...)
	log.WithField("prefix", "init").Info("Initialized http server")

	log.Fatal(server.Run(":" + viper.GetString("server.port")))
}
