package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/marsleezm/spec-calvin/configs"
	"github.com/marsleezm/spec-calvin/scheduler"
)

var (
	addr       string
	nodeID     string
	numWorkers int
	dispatchCore int
	workerOff  int
	sk         float64
	rw         float64
	l          int
	tb         int
	pin        bool
	debug      bool
	cpuProfile string
	memProfile string
)

func usage() {
	flag.PrintDefaults()
}

func init() {
	flag.StringVar(&addr, "addr", "127.0.0.1:5001", "the address for this node to listen on")
	flag.StringVar(&nodeID, "node", "node-0", "this node's id")
	flag.IntVar(&numWorkers, "workers", 4, "the number of worker goroutines")
	flag.IntVar(&dispatchCore, "dispatch_core", 3, "the CPU the dispatch loop is pinned to when -pin_cpu is set")
	flag.IntVar(&workerOff, "worker_core_off", 4, "the first CPU workers are pinned to when -pin_cpu is set")
	flag.Float64Var(&sk, "skew", 0.9, "the skew factor for the YCSB zipfian key distribution")
	flag.Float64Var(&rw, "rw", 0.5, "the read percentage")
	flag.IntVar(&l, "len", 16, "the transaction length")
	flag.IntVar(&tb, "tb", 10000, "the table size for the YCSB workload")
	flag.BoolVar(&pin, "pin_cpu", false, "pin the dispatch loop and worker goroutines to distinct CPUs")
	flag.BoolVar(&debug, "debug", false, "log debug info into logs/")
	flag.StringVar(&cpuProfile, "cpu_prof", "", "write a CPU profile to this path")
	flag.StringVar(&memProfile, "mem_prof", "", "write a memory profile to this path")

	flag.Usage = usage
}

func main() {
	flag.Parse()

	if debug {
		f, err := os.OpenFile(fmt.Sprintf("logs/logfile_%v.log", time.Now().Unix()), os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if configs.TraceFile {
		traceFile, err := os.OpenFile(fmt.Sprintf("logs/trace_%v.log", time.Now().Unix()), os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			log.Fatalf("error opening trace file: %v", err)
		}
		defer traceFile.Close()
		if err := trace.Start(traceFile); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	configs.YCSBDataSkewness = sk
	configs.ReadPercentage = rw
	configs.TransactionLength = l
	configs.NumberOfRecordsPerShard = tb
	configs.PinCPU = pin
	configs.ShowWarnings = debug
	configs.ShowTestInfo = debug

	cfg := scheduler.Config{
		NodeID:        nodeID,
		ListenAddr:    addr,
		NumWorkers:    numWorkers,
		DispatchCore:  dispatchCore,
		WorkerCoreOff: workerOff,
	}
	node, err := scheduler.NewNode(cfg, "MAIN", 10)
	if err != nil {
		log.Fatalf("failed to start node: %v", err)
	}

	node.Start(node.SequencerFetch())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	node.Stop()

	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
