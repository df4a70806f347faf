package sample

//go:generate go run github.com/ZenLiuCN/bridge/cmd/hzcall compile -k sample -o nosym.o nosym.go

func Process(payload string) string {
	return payload
}
