package cmd

import (
	"fmt"

	"github.com/jmcleod/edgehook/version"
)

const banner = `
            _            _                 _    
   ___  __| | __ _  ___| |__   ___   ___ | | __
  / _ \/ _` + "`" + ` |/ _` + "`" + ` |/ _ \ '_ \ / _ \ / _ \| |/ /
 |  __/ (_| | (_| |  __/ | | | (_) | (_) |   < 
  \___|\__,_|\__, |\___|_| |_|\___/ \___/|_|\_\
             |___/                             
`

func printBanner(rev string) {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Site front - Version %s (%s)\x1b[0m\n\n", version.Version, version.Short(rev))
}
