// Package main содержит административную утилиту сервиса выдачи книг:
// миграции схемы, просмотр и отправку напоминаний, расчёт штрафа.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
