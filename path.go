package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/sim/ptal/layer"
)

// Path locates the project layers: a directory of GeoJSON files or a MongoDB database.
type Path struct {
	Dir string
	DB  string
}

func NewPath(dirOrDB string) (*Path, error) {
	// 检查dirOrDB是否作为目录存在
	if info, err := os.Stat(dirOrDB); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("project path is not a directory: %s", dirOrDB)
		}
		return &Path{Dir: dirOrDB}, nil
	}
	db := strings.TrimSpace(dirOrDB)
	if db == "" {
		return nil, fmt.Errorf("empty project path")
	}
	if strings.ContainsAny(db, `/\. "$`) {
		return nil, fmt.Errorf("db name is invalid: %s", db)
	}
	return &Path{DB: db}, nil
}

func (p *Path) String() string {
	if p.Dir != "" {
		return p.Dir
	}
	return "mongodb:" + p.DB
}

// Store opens the layer store. The returned close function releases the connection.
func (p *Path) Store(mongoURI string) (layer.Store, func(), error) {
	if p.Dir != "" {
		return layer.NewDirStore(p.Dir), func() {}, nil
	}
	if mongoURI == "" {
		return nil, nil, fmt.Errorf("mongo_uri is required for project %s", p.DB)
	}
	client := mongoutil.NewClient(mongoURI)
	closer := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warnf("disconnect mongo: %v", err)
		}
	}
	return layer.NewMongoStore(client.Database(p.DB)), closer, nil
}
