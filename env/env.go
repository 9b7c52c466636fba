package env

import (
	"os"
	"reflect"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	DefaultEnvFile = ".env"
	// FileVariable overrides the path of the optional env file.
	FileVariable = "ENV_FILE"
)

func InitConfig(config any) error {
	LoadFile()

	if err := envconfig.Process("", config); err != nil {
		return errors.Wrap(err, "failed to envconfig.Process")
	}

	return nil
}

// LoadFile loads the env file into the process environment. Variables that
// are already set are kept.
func LoadFile() {
	// Try to load .env file, but don't fail if it doesn't exist
	// nolint:errcheck // .env file is optional, failure is acceptable
	_ = godotenv.Load(File())
}

// File returns the env file InitConfig loads.
func File() string {
	if f := os.Getenv(FileVariable); f != "" {
		return f
	}
	return DefaultEnvFile
}

// MissingRequired returns the names of every `required:"true"` variable of
// config that is unset or blank, in field order. Nested structs are walked.
func MissingRequired(config any) []string {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	var missing []string
	walkRequired(v.Type(), &missing)
	return missing
}

func walkRequired(t reflect.Type, missing *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		name := f.Tag.Get("envconfig")
		if f.Type.Kind() == reflect.Struct && name == "" {
			walkRequired(f.Type, missing)
			continue
		}
		if name == "" || f.Tag.Get("required") != "true" {
			continue
		}

		if os.Getenv(name) == "" {
			*missing = append(*missing, name)
		}
	}
}
