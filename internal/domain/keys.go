package domain

// KeyPrefix namespaces every key the service writes to the shared key-value store.
const KeyPrefix = "passage:"
