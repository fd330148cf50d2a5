package checkpointer

import "fmt"

// nStep implements checkpointing every N steps
type nStep struct {
	interval int
	object   Saver

	// filename returns the filename of the file to save the object in.
	//
	// If each checkpoint should be saved in a separate file with an
	// incremented number as a suffix (e.g. sac1.ckpt, sac2.ckpt, ...,
	// sacK.ckpt), then use FilenameEnumerator. If the name does not
	// matter, use FileTimer. To overwrite a single file, use Fixed.
	filename func() string
}

// NewNStep returns a checkpointer that checkpoints object every n
// steps.
func NewNStep(n int, object Saver, filename func() string) (Checkpointer,
	error) {
	if n <= 0 {
		return nil, fmt.Errorf("newNStep: interval must be positive but "+
			"got %v", n)
	}
	if object == nil || filename == nil {
		return nil, fmt.Errorf("newNStep: object and filename function " +
			"must be non-nil")
	}
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the tracked object by calling its Save() method if
// step is a multiple of the checkpointing interval. Step 0 is never
// checkpointed.
func (n *nStep) Checkpoint(step int) (bool, error) {
	if step <= 0 || step%n.interval != 0 {
		return false, nil
	}

	path := n.filename()
	if err := n.object.Save(path); err != nil {
		return false, fmt.Errorf("checkpoint: could not save to %v: %v",
			path, err)
	}
	return true, nil
}
