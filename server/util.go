// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"

	"github.com/pingcap-incubator/tinymeta/server/config"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Version information, set via -ldflags at build time.
var (
	TinymetaReleaseVersion = "None"
	TinymetaBuildTS        = "None"
	TinymetaGitHash        = "None"
	TinymetaGitBranch      = "None"
)

// LogTinymetaInfo prints the version information with the logger.
func LogTinymetaInfo() {
	log.Info("Welcome to tinymeta")
	log.Info("tinymeta", zap.String("release-version", TinymetaReleaseVersion))
	log.Info("tinymeta", zap.String("git-hash", TinymetaGitHash))
	log.Info("tinymeta", zap.String("git-branch", TinymetaGitBranch))
	log.Info("tinymeta", zap.String("utc-build-time", TinymetaBuildTS))
}

// PrintTinymetaInfo prints the version information without log info.
func PrintTinymetaInfo() {
	fmt.Println("Release Version:", TinymetaReleaseVersion)
	fmt.Println("Git Commit Hash:", TinymetaGitHash)
	fmt.Println("Git Branch:", TinymetaGitBranch)
	fmt.Println("UTC Build Time: ", TinymetaBuildTS)
}

// PrintConfigCheckMsg prints the message about configuration checks.
func PrintConfigCheckMsg(cfg *config.Config) {
	if len(cfg.WarningMsgs) == 0 {
		fmt.Println("config check successful")
		return
	}

	for _, msg := range cfg.WarningMsgs {
		fmt.Println(msg)
	}
}
