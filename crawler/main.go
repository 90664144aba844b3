package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bitmark-inc/covid19-uk/consts"
	"github.com/bitmark-inc/covid19-uk/external/phe"
	"github.com/bitmark-inc/covid19-uk/pipeline"
	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/store"
)

const (
	logPrefix      = "crawler"
	defaultTimeout = 15 * time.Second
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

	flag.StringVar(&configFile, "c", "./config.yaml", "[optional] path of configuration file")
	flag.Parse()

	loadConfig(configFile)

	initLog()

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("sentry.dsn"),
		AttachStacktrace: true,
		Environment:      viper.GetString("sentry.environment"),
	}); err != nil {
		log.Error(err)
	}

	err := run(context.Background())
	if nil != err {
		sentry.CaptureException(err)
		log.WithField("prefix", logPrefix).Error(err)
	}
	sentry.Flush(5 * time.Second)

	if nil != err {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	config, err := pipeline.ConfigFromViper(viper.GetViper())
	if nil != err {
		return err
	}

	opts := []pipeline.Option{}
	if config.CoordinatesFile != "" {
		ref, err := store.LoadCoordinates(config.CoordinatesFile)
		if nil != err {
			return err
		}
		log.WithFields(log.Fields{"prefix": logPrefix, "file": config.CoordinatesFile, "areas": len(ref)}).Info("loaded coordinates")
		opts = append(opts, pipeline.WithCoordinates(ref))
	}

	source := phe.New(viper.GetString("phe.url"), phe.WithTimeout(viper.GetDuration("phe.timeout")))
	p, err := pipeline.New(config, source, opts...)
	if nil != err {
		return err
	}

	fileStore, err := store.NewFileStore(viper.GetString("store.dir"))
	if nil != err {
		return err
	}
	sinks := []pipeline.Sink{fileStore}

	if conn := viper.GetString("mongo.conn"); conn != "" {
		mongoClient, err := connectMongo(ctx, conn)
		if nil != err {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()
			log.WithField("prefix", logPrefix).Info("Shutting down mongo store")
			_ = mongoClient.Disconnect(ctx)
		}()

		database := viper.GetString("mongo.database")
		if err := schema.NewMongoDBIndexer(mongoClient, database).IndexAll(); nil != err {
			return err
		}
		sinks = append(sinks, store.NewMongoStore(mongoClient, database))
	}

	result, runErr := p.Run(ctx)
	if len(result.Order) == 0 {
		return runErr
	}

	if err := p.Persist(ctx, result, sinks...); nil != err {
		return err
	}
	return runErr
}

func connectMongo(ctx context.Context, conn string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(conn)
	if pool := viper.GetUint64("mongo.pool"); pool > 0 {
		opts.SetMaxPoolSize(pool)
	}
	mongoClient, err := mongo.NewClient(opts)
	if nil != err {
		return nil, fmt.Errorf("create mongo client with error: %s", err)
	}

	if err := mongoClient.Connect(ctx); nil != err {
		return nil, fmt.Errorf("connect mongo database with error: %s", err)
	}
	return mongoClient, nil
}
