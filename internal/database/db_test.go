package database

import "testing"

func TestOptionsDSN(t *testing.T) {
	o := Options{User: "app", Pass: "s3cret", Host: "db", Port: "3306", Name: "shop"}
	want := "app:s3cret@tcp(db:3306)/shop?charset=utf8mb4&parseTime=true&loc=UTC"
	if got := o.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestOptionsDSNWithoutPassword(t *testing.T) {
	o := Options{User: "root", Host: "localhost", Port: "3306", Name: "shop"}
	want := "root@tcp(localhost:3306)/shop?charset=utf8mb4&parseTime=true&loc=UTC"
	if got := o.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
