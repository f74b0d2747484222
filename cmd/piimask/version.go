package main

// BuildNumber holds the application version. It is overwritten at link time:
//
//	go build -ldflags "-X main.BuildNumber=$(git rev-parse --short HEAD)"
var BuildNumber = "dev"
