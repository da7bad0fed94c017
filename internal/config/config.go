// Package config loads the engine's externally configurable settings from
// a YAML file with environment-variable overrides, per the recognized
// keys named in the engine's external interface contract.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the durable-store connection settings the façade's
// out-of-scope storage backend is configured with, plus the address the
// thin HTTP transport binds to.
type Config struct {
	DatabaseHost     string `yaml:"database_host" json:"database_host" env:"BPMN_DB_HOST" env-default:"localhost"`
	DatabasePort     int    `yaml:"database_port" json:"database_port" env:"BPMN_DB_PORT" env-default:"5432"`
	DatabaseName     string `yaml:"database_name" json:"database_name" env:"BPMN_DB_NAME" env-default:"bpmn_engine"`
	DatabaseUser     string `yaml:"database_user" json:"database_user" env:"BPMN_DB_USER" env-default:"postgres"`
	DatabasePassword string `yaml:"database_password" json:"database_password" env:"BPMN_DB_PASS" env-default:"password"`

	HttpAddr string `yaml:"http_addr" json:"http_addr" env:"BPMN_HTTP_ADDR" env-default:":8080"`
}

// InitConfig reads configuration from the file named by CONFIG_FILE (or
// "conf.yaml" in the working directory), falling back to pure
// environment/default resolution when no file is present. Environment
// variables always override values loaded from a file, per cleanenv's
// ReadConfig behavior.
func InitConfig() Config {
	c := Config{}
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	return c
}
