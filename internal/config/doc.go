// Package config provides configuration parsing for the renderer and its
// command-line tools.
//
// The configuration is stored in vango-web.json. Every field is optional;
// missing values take the defaults returned by New.
//
// # Configuration File Structure
//
//	{
//	  "features": {
//	    "mountReporting": true,
//	    "fileIngest": true,
//	    "hotReload": true,
//	    "eval": true
//	  },
//	  "document": {
//	    "rootId": "main",
//	    "nodeLimit": 100000
//	  },
//	  "hotReload": {
//	    "url": "ws://localhost:3001/ws",
//	    "initialBackoff": "250ms",
//	    "maxBackoff": "30s"
//	  },
//	  "ingest": {
//	    "dir": ".vango-web/ingest",
//	    "maxFileSize": 10485760,
//	    "timeout": "30s",
//	    "cleanupAge": "1h",
//	    "s3": {"bucket": "uploads", "prefix": "ingest/", "region": "us-east-1"}
//	  },
//	  "eval": {"timeout": "5s"}
//	}
//
// # Usage
//
//	cfg, err := config.LoadFile("vango-web.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if cfg.Features.Enabled(config.FeatureHotReload) {
//	    fmt.Println("Reload server:", cfg.HotReload.URL)
//	}
package config
