// Command budgetctl runs operator tasks against the budgetkit database.
package main

import (
	"os"

	"budgetkit/internal/logger"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	Execute()
}
