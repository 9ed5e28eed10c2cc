package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
)

func printBanner() {
	figure1 := figure.NewFigure("Slidescan", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	fmt.Println()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			pc, file, line, ok := runtime.Caller(3)
			location := "Unknown location"
			if ok {
				location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
			}
			bannercolor.Red("PANIC: %v", r)
			bannercolor.Red("Location: %s", location)

			err := fmt.Errorf("panic: %v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
			if notifyErr := app.notifier().Error(context.Background(), "slidescan", err); notifyErr != nil {
				bannercolor.Red("Failed to send notification: %s", notifyErr)
			}
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		bannercolor.Red("%v", err)
		os.Exit(1)
	}
}
