package misc

import (
	"fmt"

	"github.com/joho/godotenv"
)

func LoadEnvSettings() {
	godotenv.Load(".env.local")
	godotenv.Load() // .env
}

func LoadEnvFile(name string) error {
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("loading env file %s: %w", name, err)
	}
	return nil
}
