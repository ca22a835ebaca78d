/*
Package config loads tunables for threadlocal registries from YAML or JSON.

# Basic Usage

Load from a file and apply:

	cfg, err := config.FromFile("threadlocal.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	threadlocal.SetVacuumThreshold(cfg.VacuumThreshold)
	reg := threadlocal.New(threadlocal.WithConfig[*Conn](cfg))

A YAML config file:

	prune_threshold: 4
	vacuum_threshold: 256
	metrics: true
	tracing: false

Missing keys keep the defaults from Default().
*/
package config
