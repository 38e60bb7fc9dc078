// Package berth provisions ephemeral, disposable service containers for
// automated test suites on top of a container engine (docker, podman, or
// nerdctl) and determines when each instance is ready to accept traffic.
//
// A typical test starts a container and tears it down when done:
//
//	port := berth.Port(5432)
//	c, err := berth.Run(ctx, berth.Spec{
//		Image: "postgres:16-alpine",
//		Env:   map[string]string{"POSTGRES_PASSWORD": "secret"},
//		Ports: []*berth.ExposedPort{port},
//		Wait:  []wait.Strategy{wait.ForTCP(5432)},
//	})
//	if err != nil {
//		t.Fatal(err)
//	}
//	defer c.Close(ctx)
//
//	hostPort, _ := port.Host()
package berth
