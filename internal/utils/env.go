package utils

import (
	"os"
	"strconv"

	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable not an integer, using default",
				"env_var", key, "value", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return val
}

func GetEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable not a float, using default",
				"env_var", key, "value", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return val
}
