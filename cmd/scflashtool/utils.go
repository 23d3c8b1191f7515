package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dump results in json, this is a scripting-first tool
func PrintJson(result interface{}) {
	rawjson, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(rawjson))
}

// Date time format safe to use in filenames on all systems
func FileSafeDateTime() string {
	return time.Now().Format("20060102_150405")
}
