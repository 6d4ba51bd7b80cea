// Command dtool-irods inspects and creates dtool datasets stored in iRODS.
//
// Usage:
//
//	dtool-irods ls /tempZone/home/rods
//	dtool-irods show irods:/tempZone/home/rods/<uuid>
//	dtool-irods items irods:/tempZone/home/rods/<uuid>
//	dtool-irods props irods:/tempZone/home/rods/<uuid> <identifier>
//	dtool-irods fetch irods:/tempZone/home/rods/<uuid> <identifier>
//	dtool-irods create /tempZone/home/rods my-dataset ./local-dir
//	dtool-irods cache clear irods:/tempZone/home/rods/<uuid>
//	dtool-irods config init
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
