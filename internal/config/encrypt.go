package config

import (
	"fmt"
	"os"

	"github.com/rowjay/s3backup/internal/cryptoutil"
)

// EncryptConfigFile encrypts a config file with the provided key. The output
// is loadable by Load when its name ends in .enc.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	if !isEncryptedPath(outputPath) {
		return fmt.Errorf("output %s must end in .enc", outputPath)
	}
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.EncryptConfig(plain, key)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, ciphertext, 0o600)
}
