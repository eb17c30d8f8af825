package main

import (
	"fmt"
	"os"

	"github.com/yungbote/intentbase-backend/internal/app"
	"github.com/yungbote/intentbase-backend/internal/utils"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := ":" + utils.GetEnv("PORT", "8080", a.Log)
	a.Log.Info("Starting server...", "addr", addr)
	if err := a.Run(addr); err != nil {
		a.Log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
