package main

import "github.com/adanyl0v/go-todo-share/internal/app"

func main() {
	app.InitDefaultLogger()
	app.MustReadEnv()
	app.MustInitApplicationLogger()

	app.MustConnectPostgres()
	defer app.DisconnectPostgres()
	app.MustMigratePostgres()

	app.MustConnectRedis()
	defer app.DisconnectRedis()

	app.MustStartRealtime()
	defer app.StopRealtime()

	app.MustListenAndServeHTTP()
}
