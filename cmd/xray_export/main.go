// Command xray_export はXrayのテストケースとJIRAのリンク情報をCSVにエクスポートします。
package main

import (
	"os"
)

func main() {
	if err := executeRoot(newRootCmd()); err != nil {
		os.Exit(1)
	}
}
