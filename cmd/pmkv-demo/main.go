package main

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pmkv"
)

type Player struct {
	ID   uint64
	HP   uint32
	MP   uint32
	Name [32]byte
}

func NewPlayer(id uint64, hp, mp uint32, name string) *Player {
	p := Player{ID: id, HP: hp, MP: mp}
	copy(p.Name[:], []byte(name))
	return &p
}

func main() {
	dir, err := os.MkdirTemp("", "pmkv-demo")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	opts := pmkv.DefaultOptions()
	opts.MaxValueLen = 64
	db, err := pmkv.Open(filepath.Join(dir, "players.pool"), opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close()

	ranking, err := pmkv.OpenArray(filepath.Join(dir, "ranking.pool"), 200, func(a, b uint64) int { return cmp.Compare(a, b) })
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ranking.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	addPlayer := func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = pmkv.SetFixed(db, fmt.Sprintf("player:%d", i), NewPlayer(uint64(i), uint32(i), uint32(i), fmt.Sprintf("player%d", i)))
			_ = ranking.Insert(uint64(i) * 2)
		}
	}
	addMaster := func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = pmkv.SetFixed(db, fmt.Sprintf("master:%d", i), NewPlayer(uint64(i), uint32(i), uint32(i), fmt.Sprintf("master%d", i)))
			_ = ranking.Insert(uint64(i)*2 + 1)
		}
	}
	go addPlayer()
	go addMaster()
	wg.Wait()

	for _, prefix := range []string{"player", "master"} {
		for i := 0; i < 100; i++ {
			got, err := pmkv.GetFixed[Player](db, fmt.Sprintf("%s:%d", prefix, i))
			if err != nil {
				break
			}
			fmt.Println(got.ID, got.HP, string(got.Name[:]))
		}
	}
	fmt.Println("pairs:", db.Len(), "ranking:", ranking.Len(), "publishes:", ranking.Publishes())
}
