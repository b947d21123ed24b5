// Command gijones harvests the G.I. Jones photographic archive into a clean image dataset.
package main

import (
	"os"

	"github.com/igboarchives/harvester/internal/app"
	"github.com/igboarchives/harvester/internal/config"
)

func main() {
	os.Exit(app.Main(config.SourceGIJones))
}
