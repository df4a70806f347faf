package sample

//go:generate go run github.com/ZenLiuCN/bridge/cmd/hzcall compile -k sample -o echo.o echo.go

// HzProcess echoes the payload.
func HzProcess(payload string) string {
	return payload
}
