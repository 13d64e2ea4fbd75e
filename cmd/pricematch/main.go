// cmd/pricematch/main.go
package main

func main() {
	Execute()
}
