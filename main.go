/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/mycloud-app/mycloud/cmd"

func main() {
	cmd.Execute()
}
