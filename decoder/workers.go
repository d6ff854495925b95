package main

import (
	"fmt"
	"io"
	"sync"

	decoder "github.com/next-exp/citiroc_decoder/pkg"
	"github.com/next-exp/citiroc_decoder/pkg/writer"
)

type WorkerData struct {
	FileIndex int
	Filename  string
	FileOut   string
	Lookup    *decoder.ChannelLookup
}

type resultKind int

const (
	headerResult resultKind = iota
	eventResult
	doneResult
)

// WorkerResult carries the header of a file, one of its events, or the final
// status of the file.
type WorkerResult struct {
	Kind      resultKind
	Job       WorkerData
	Header    decoder.FileHeader
	Event     *decoder.DecodedEvent
	EvtCount  int
	Discarded int
	Err       error
}

func worker(id int, opts decoder.Options, jobs <-chan WorkerData, results chan<- WorkerResult) {
	for job := range jobs {
		if VerbosityLevel > 0 {
			message := fmt.Sprintf("Worker %d processing file %s", id, job.Filename)
			logger.Info(message, "worker")
		}
		decodeFile(id, job, opts, results)
	}
}

// decodeFile owns the event stream of one file from open to close.
func decodeFile(id int, job WorkerData, opts decoder.Options, results chan<- WorkerResult) {
	done := WorkerResult{Kind: doneResult, Job: job}
	defer func() {
		if r := recover(); r != nil {
			done.Err = fmt.Errorf("worker %d recovered from panic on file %s: %v", id, job.Filename, r)
		}
		results <- done
	}()

	fileReader, err := NewFileReader(job.Filename, job.Lookup, opts, configuration)
	if err != nil {
		done.Err = err
		return
	}
	defer fileReader.Close()

	results <- WorkerResult{Kind: headerResult, Job: job, Header: fileReader.Stream.Header()}

	for {
		event, err := fileReader.getNextEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			done.Err = fmt.Errorf("error reading %s: %w", job.Filename, err)
			break
		}
		results <- WorkerResult{Kind: eventResult, Job: job, Event: event}
	}
	done.EvtCount = fileReader.EvtCount
	done.Discarded = fileReader.Discarded
}

func startWorkers(nWorkers int, opts decoder.Options, jobs []WorkerData) <-chan WorkerResult {
	jobsChan := make(chan WorkerData, len(jobs))
	results := make(chan WorkerResult, 100)

	var wg sync.WaitGroup
	for w := 1; w <= nWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id, opts, jobsChan, results)
		}(w)
	}
	for _, job := range jobs {
		jobsChan <- job
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// processWorkerResults is the only goroutine touching HDF5 files. It returns
// the number of files that failed.
func processWorkerResults(results <-chan WorkerResult, writeData bool, compressionLevel int) int {
	writers := make(map[int]*writer.Writer)
	failed := 0

	closeWriter := func(index int) {
		w, ok := writers[index]
		if !ok {
			return
		}
		if err := w.Close(); err != nil {
			logger.Error(fmt.Sprintf("error closing %s: %v", w.Filename, err))
		}
		delete(writers, index)
	}

	for result := range results {
		job := result.Job
		switch result.Kind {
		case headerResult:
			if !writeData {
				continue
			}
			if VerbosityLevel > 0 {
				message := fmt.Sprintf("hdf5writer: Creating file: %s", job.FileOut)
				logger.Info(message, "writer")
			}
			w, err := writer.NewWriter(job.FileOut, result.Header.AcquisitionMode, compressionLevel)
			if err != nil {
				logger.Error(fmt.Sprintf("error creating output for %s: %v", job.Filename, err))
				continue
			}
			if err := w.WriteRunInfo(result.Header); err != nil {
				logger.Error(err.Error())
			}
			writers[job.FileIndex] = w

		case eventResult:
			w, ok := writers[job.FileIndex]
			if !ok {
				continue
			}
			if err := w.WriteEvent(result.Event); err != nil {
				logger.Error(err.Error())
			}

		case doneResult:
			closeWriter(job.FileIndex)
			if result.Err != nil {
				failed++
				logger.Error(result.Err.Error())
			}
			if VerbosityLevel > 0 {
				message := fmt.Sprintf("%s: %d events decoded, %d discarded", job.Filename, result.EvtCount, result.Discarded)
				logger.Info(message, "worker")
			}
		}
	}

	// Only reached with open writers if a worker died without reporting
	for index := range writers {
		closeWriter(index)
	}
	return failed
}
